package domain

const (
	RequesterIdCtxKey   = "prism-requesterId"
	RequesterTypeCtxKey = "prism-requesterType"
)

const (
	RequesterIdHeader   = "x-prism-user"
	RequesterTypeHeader = "x-prism-requester-type"
)

const (
	RequesterUnknown = iota
	RequesterUser
	RequesterAdmin
)

func RequesterTypeString(t int) string {
	switch t {
	case RequesterUser:
		return "User"
	case RequesterAdmin:
		return "Admin"
	case RequesterUnknown:
		return "Unknown"
	default:
		return "Error"
	}
}

// Broadcast channel names. Library events are published on
// EventChannelPrefix + library ID.
const (
	EventChannelPrefix = "prism:events:"
)
