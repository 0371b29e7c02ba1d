package redis

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "jobrunner:"

// keys derives Redis key names from a prefix.
type keys struct {
	prefix string
}

// job returns the Hash key for a job record: {prefix}job:{id}
func (k keys) job(id string) string { return k.prefix + "job:" + id }

// index returns the Set key tracking all job ids for enumeration.
func (k keys) index() string { return k.prefix + "jobs" }
