package core

// app_chat.go — the one-slot chat application. Grounded on the teacher's
// MessageQueue/NetworkMessage broadcast primitives in messages.go, collapsed
// from an unbounded FIFO queue down to the single overwrite-only slot the
// component design calls for: every send replaces whatever the caller's
// account previously held, nothing is retained or replayed.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const SelectorChatSend uint32 = 1

// ChatApp stores exactly one message per account: the last one sent.
type ChatApp struct {
	instanceID uint32
	maxStorage uint64
}

func NewChatApp(instanceID uint32) Application {
	return &ChatApp{instanceID: instanceID, maxStorage: 4096}
}

func (a *ChatApp) Type() ApplicationType { return AppTypeChat }

func (a *ChatApp) MaxStorage() uint64 { return a.maxStorage }

func (a *ChatApp) Execute(rt *Runtime, ctx *ExecutionContext, instanceID uint32, caller Address, selector uint32, params []byte) error {
	switch selector {
	case SelectorChatSend:
		return a.send(ctx, instanceID, caller, params)
	default:
		return fmt.Errorf("%w: chat selector %d", ErrUnknownSelector, selector)
	}
}

// MaxMessageBytes bounds the params blob a single send stores.
const MaxMessageBytes = 2048

// send overwrites the caller's chat sub-record with params verbatim. The
// sub-record is instance_id(4) | params — whatever shape the caller sent,
// decoding it is the reader's concern, not this application's.
func (a *ChatApp) send(ctx *ExecutionContext, instanceID uint32, caller Address, params []byte) error {
	if err := ctx.Op(0); err != nil {
		return err
	}
	if len(params) > MaxMessageBytes {
		return fmt.Errorf("%w: message of %d bytes exceeds %d", ErrValidation, len(params), MaxMessageBytes)
	}
	all, _, idx, err := GetAccountSubRecord(ctx, caller, instanceID, true)
	if err != nil {
		return err
	}
	subRecord := append(InstanceIDBytes(instanceID), params...)
	all = SetToArray(all, idx, subRecord)
	if err := WriteAccountSubRecords(ctx, caller, all, true); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"instance_id": instanceID, "sender": caller.String(), "bytes": len(params)}).Info("chat: send")
	return nil
}
