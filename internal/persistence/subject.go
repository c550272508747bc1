package persistence

import "strings"

// sessionIDFromSubject extracts the trailing session-id segment from a
// dotted bus subject such as "audio.raw.<id>" or "transcript_event.<id>".
func sessionIDFromSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}
