package process

// Progress channels shared by every process.
const (
	ChannelItems = 0
	ChannelBytes = 1
	ChannelExtra = 2
)

// Listener observes a running process. Implementations must be safe to call
// from the process goroutine and must not block.
type Listener interface {
	OnMessage(channel int, msg string)
	OnMax(channel int, max int64)
	OnProgress(channel int, progress int64)
}

type nopListener struct{}

// NopListener ignores every event.
func NopListener() Listener { return nopListener{} }

func (nopListener) OnMessage(int, string) {}
func (nopListener) OnMax(int, int64)      {}
func (nopListener) OnProgress(int, int64) {}
