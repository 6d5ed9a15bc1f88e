package config

type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreFile   StoreBackend = "file"
	StoreRedis  StoreBackend = "redis"
)

const (
	storeBackendVar = "SESSION_STORE"
	tokenKeyVar     = "SESSION_TOKEN_KEY"
	userKeyVar      = "SESSION_USER_KEY"
	storeFileVar    = "SESSION_FILE"
	redisAddrVar    = "REDIS_ADDR"
	redisPrefixVar  = "REDIS_PREFIX"
)

type Session struct {
	v *values
}

var _ SessionConfig = Session{}

func (s Session) GetStoreBackend() StoreBackend {
	switch b := StoreBackend(s.v.get(storeBackendVar, string(StoreFile))); b {
	case StoreMemory, StoreFile, StoreRedis:
		return b
	default:
		return StoreFile
	}
}

func (s Session) GetTokenKey() string {
	return s.v.get(tokenKeyVar, "token")
}

func (s Session) GetUserKey() string {
	return s.v.get(userKeyVar, "user")
}

// GetStoreFile defaults to session.json inside the data folder.
func (s Session) GetStoreFile() string {
	return s.v.get(storeFileVar, EnvVars{s.v}.dataPath("session.json"))
}

func (s Session) GetRedisAddr() string {
	return s.v.get(redisAddrVar, "localhost:6379")
}

func (s Session) GetRedisPrefix() string {
	return s.v.get(redisPrefixVar, "authclient:")
}
