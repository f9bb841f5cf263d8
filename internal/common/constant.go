package common

// AppName prefixes derived key labels and remote root folders.
const AppName = "storagecrypt"

// DefaultKeyAlias is the alias of the key created when the key store is initialized.
const DefaultKeyAlias = "default"
