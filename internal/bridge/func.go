package bridge

import "context"

// FuncMessenger encodes each message and hands the bytes to a function,
// such as a webview postMessage binding.
type FuncMessenger func(ctx context.Context, payload []byte) error

// Send encodes msg and calls f.
func (f FuncMessenger) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return f(ctx, data)
}
