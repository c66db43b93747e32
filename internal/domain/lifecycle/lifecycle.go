// Пакет lifecycle — конечный автомат статусов предложений.
//
// Основной поток: pending → pending_review → active | archived.
// Устаревший двухшаговый поток: pending → rejected.
// Статусы active, archived и rejected конечные.
//
// Автомат не хранит состояние: текущий статус живёт в БД, а сервисы
// перепроверяют его условным UPDATE в той же транзакции, что и переход.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/complyreg/register-module/internal/domain/model"
)

// Event — событие, инициирующее переход.
type Event string

const (
	// EventPromote — передача на оценку ответственному
	EventPromote Event = "promote"
	// EventReject — отклонение при разборе
	EventReject Event = "reject"
	// EventApprove — утверждение ответственным
	EventApprove Event = "approve"
	// EventDiscard — отклонение ответственным
	EventDiscard Event = "discard"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTerminalState     = "TERMINAL_STATE"
	CodeUnknownEvent      = "UNKNOWN_EVENT"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — событие и целевой статус.
var validTransitions = map[model.SuggestionStatus]map[Event]model.SuggestionStatus{
	model.StatusPending: {
		EventPromote: model.StatusPendingReview,
		EventReject:  model.StatusRejected,
	},
	model.StatusPendingReview: {
		EventApprove: model.StatusActive,
		EventDiscard: model.StatusArchived,
	},
	model.StatusActive:   {},
	model.StatusArchived: {},
	model.StatusRejected: {},
}

// sourceStatus — единственный допустимый исходный статус для события.
var sourceStatus = map[Event]model.SuggestionStatus{
	EventPromote: model.StatusPending,
	EventReject:  model.StatusPending,
	EventApprove: model.StatusPendingReview,
	EventDiscard: model.StatusPendingReview,
}

// TransitionError — ошибка перехода. Current — фактический статус предложения.
type TransitionError struct {
	Code    string
	Event   Event
	Current model.SuggestionStatus
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Next возвращает целевой статус для события из текущего статуса.
func Next(current model.SuggestionStatus, event Event) (model.SuggestionStatus, error) {
	if _, ok := sourceStatus[event]; !ok {
		return "", &TransitionError{
			Code:    CodeUnknownEvent,
			Event:   event,
			Current: current,
			Message: fmt.Sprintf("неизвестное событие %q", event),
		}
	}

	if IsTerminal(current) {
		return "", &TransitionError{
			Code:    CodeTerminalState,
			Event:   event,
			Current: current,
			Message: fmt.Sprintf("предложение в конечном статусе %s, событие %s недопустимо", current, event),
		}
	}

	events, ok := validTransitions[current]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Event:   event,
			Current: current,
			Message: fmt.Sprintf("неизвестный статус %q", current),
		}
	}
	target, ok := events[event]
	if !ok {
		return "", &TransitionError{
			Code:    CodeInvalidTransition,
			Event:   event,
			Current: current,
			Message: fmt.Sprintf("событие %s требует статуса %s, текущий статус %s",
				event, sourceStatus[event], current),
		}
	}
	return target, nil
}

// Source возвращает статус, из которого допустимо событие.
func Source(event Event) (model.SuggestionStatus, bool) {
	s, ok := sourceStatus[event]
	return s, ok
}

// IsTerminal проверяет, является ли статус конечным.
func IsTerminal(status model.SuggestionStatus) bool {
	switch status {
	case model.StatusActive, model.StatusArchived, model.StatusRejected:
		return true
	default:
		return false
	}
}
