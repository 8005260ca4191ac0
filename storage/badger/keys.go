package badger

// Key prefixes for different data types
const (
	checkpointPrefix = "chkpt"
)

// makeCheckpointKey generates a key for an embedding cursor checkpoint.
// Format: prefix:key
func makeCheckpointKey(key string) []byte {
	buf := make([]byte, 0, len(checkpointPrefix)+1+len(key))
	buf = append(buf, checkpointPrefix...)
	buf = append(buf, ':')
	return append(buf, key...)
}
