package redis

import (
	"fmt"
	"strings"
)

// Keys follow the scheme "checkpoint:{thread_id}:{ts}". Thread ids must
// not contain colons; the version marker is always the last segment.

func checkpointKey(threadID, ts string) string {
	return fmt.Sprintf("checkpoint:%s:%s", threadID, ts)
}

// checkpointPattern matches every version of one thread, or every thread
// when threadID is empty. Used only by latest-resolution and listing.
func checkpointPattern(threadID string) string {
	if threadID == "" {
		threadID = "*"
	}
	return fmt.Sprintf("checkpoint:%s:*", threadID)
}

func keyTS(key string) string {
	return key[strings.LastIndex(key, ":")+1:]
}

func keyThreadID(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
