//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-sync/domain/chat"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
	Wait()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// Named lets a worker carry an explicit name instead of its type name,
// useful when many instances of the same type run side by side.
type Named interface {
	GetName() WorkerName
}

// GetWorkerName returns the explicit name of a Named worker, or the type
// name of the worker found by reflection.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	if n, ok := w.(Named); ok && n.GetName() != "" {
		return string(n.GetName())
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// View is anything a consumer opens and must release on teardown:
// an open thread, a conversation list.
type View interface {
	Close()
}

// ConversationSink receives every snapshot of a user's conversations.
type ConversationSink interface {
	Consume(ctx context.Context, conversations []chat.Conversation) error
}
