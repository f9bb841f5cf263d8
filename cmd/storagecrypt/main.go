package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/storagecrypt/internal/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.NewRootCommand(os.Args[1:]).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
