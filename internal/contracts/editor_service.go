package contracts

// SchemaVersion is the editor-service schema this plugin speaks.
const SchemaVersion = 5

// MessageKind identifies the body layout of an editor-service message.
type MessageKind uint32

const (
	// MessageKindSuccessResponse acknowledges a message. Body: original id.
	MessageKindSuccessResponse MessageKind = 0
	// MessageKindErrorResponse reports a failure. Body: original id, error text.
	MessageKindErrorResponse MessageKind = 1
	// MessageKindShutDownProcess asks the editor service to exit.
	MessageKindShutDownProcess MessageKind = 2
	// MessageKindActive is a liveness probe answered with a success response.
	MessageKindActive MessageKind = 3
	// MessageKindCanFormat asks whether a path is formattable. Body: path.
	MessageKindCanFormat MessageKind = 4
	// MessageKindCanFormatResponse answers CanFormat. Body: original id, bool.
	MessageKindCanFormatResponse MessageKind = 5
	// MessageKindFormatFile requests formatting of a file's text.
	MessageKindFormatFile MessageKind = 6
	// MessageKindFormatFileResponse carries the formatted text, if changed.
	MessageKindFormatFileResponse MessageKind = 7
	// MessageKindCancelFormat cancels an in-flight FormatFile. Body: original id.
	MessageKindCancelFormat MessageKind = 8
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindSuccessResponse:
		return "SuccessResponse"
	case MessageKindErrorResponse:
		return "ErrorResponse"
	case MessageKindShutDownProcess:
		return "ShutDownProcess"
	case MessageKindActive:
		return "Active"
	case MessageKindCanFormat:
		return "CanFormat"
	case MessageKindCanFormatResponse:
		return "CanFormatResponse"
	case MessageKindFormatFile:
		return "FormatFile"
	case MessageKindFormatFileResponse:
		return "FormatFileResponse"
	case MessageKindCancelFormat:
		return "CancelFormat"
	default:
		return "Unknown"
	}
}

// IsResponse reports whether messages of this kind answer an earlier message
// and therefore start their body with the original message id.
func (k MessageKind) IsResponse() bool {
	switch k {
	case MessageKindSuccessResponse,
		MessageKindErrorResponse,
		MessageKindCanFormatResponse,
		MessageKindFormatFileResponse:
		return true
	default:
		return false
	}
}
