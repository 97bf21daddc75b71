package server

type Config struct {
	SocketConfig struct {
		PingPeriodTime                int `default:"8000"`
		PongWaitTime                  int `default:"10000"`
		WriteWaitTime                 int `default:"5000"`
		ReceivedMessageDecrementCount int `default:"20"`
		OutgoingQueueSize             int `default:"64"`
	}
	DBConfig struct {
		ConnString string `default:"mongo"`
		Name       string `default:"rpsbattle"`
	}
	RedisConfig struct {
		ConnString string `default:"redis:6379"`
		PoolSize   int    `default:"10"`
	}
	AuthConfig struct {
		JWTSecret       string `default:"mM1crkEGPJpLCcnb"`
		TokenExpireTime int    `default:"86400"`
	}
	GameConfig struct {
		TotalRounds     int   `default:"10"`
		StartingBalance int64 `default:"1000"`
		//All durations are in milliseconds
		ChallengeTimeout       int `default:"30000"`
		MoveTimeout            int `default:"0"` //0 disables the round timer
		DisconnectGraceTime    int `default:"60000"`
		SettlementRetryCount   int `default:"5"`
		SettlementRetryBackoff int `default:"200"`
	}
	RabbitMQ struct {
		ConnectionString string
	}
	NotificationConfig struct {
		AppKey string
		AppID  string
	}
	Port               int    `default:"7350"`
	ApiURL             string `default:"http://localhost"`
	MaxRequestBodySize int64  `default:"4096"`
	DevelopmentEnabled bool   `default:"false"`
}
