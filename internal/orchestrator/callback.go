package orchestrator

import "context"

// HandleCallback implements `handle-callback(chat, data)` for inline-
// control responses by dispatching data through HandleMessage. It takes no
// per-chat lock itself. The Telegram and Discord transports hand every
// callback to the ingress pipeline's Cancel path (queue.Manager.Cancel) and
// do not call this method.
func (o *Orchestrator) HandleCallback(ctx context.Context, chatKey, data string) (Reply, error) {
	return o.HandleMessage(ctx, chatKey, data)
}
