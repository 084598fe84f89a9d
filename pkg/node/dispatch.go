package node

import (
	"context"

	"go.uber.org/zap"

	"lanhop/pkg/events"
	"lanhop/pkg/obfuscate"
	"lanhop/pkg/protocol"
)

// HandleEnvelope is the receiver's handler: it reverts obfuscation, routes
// stream frames and collection files to their registries, records history
// and publishes the envelope.
func (n *Node) HandleEnvelope(_ context.Context, env *protocol.Envelope) {
	n.reveal(env)

	switch env.Kind {
	case protocol.KindStreamFrame:
		n.tracker.RegisterReceivedFrame(env.StreamID, env.SenderAddress, env.SequenceNumber)
	case protocol.KindCollectionFile:
		n.collections.AddFile(env.SenderAddress, *env)
	}
	if n.history != nil {
		if _, err := n.history.Add(env); err != nil {
			zap.L().Warn("history not recorded", zap.Error(err))
		}
	}
	if env.Undecryptable {
		n.sink.Publish(events.Event{Kind: events.Status, Envelope: env, Message: "received " + env.Name + " from " + env.SenderAddress + " with a different obfuscation code"})
	}
	n.sink.Publish(events.Event{Kind: events.Received, Envelope: env})
}

// reveal reverts the obfuscation of env when the codes match and flags it
// undecryptable otherwise. The content is never dropped.
func (n *Node) reveal(env *protocol.Envelope) {
	if !env.Obfuscated {
		return
	}
	local := n.cfg.Obfuscation.Passphrase
	if !obfuscate.CodesMatch(env.ObfuscationCode, local) {
		env.Undecryptable = true
		return
	}
	if env.Kind.Binary() {
		env.Payload = obfuscate.Transform(env.Payload, local)
	} else {
		env.Text = obfuscate.RevertText(env.Text, local)
	}
}
