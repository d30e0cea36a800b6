package config

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Provider struct {
		Name      string
		BaseURL   string
		SecretKey string
		ReturnURL string
	}
	Scheduler struct {
		CronExpression    string
		BatchSize         int
		StaleClaimMinutes int
	}
	Settlement struct {
		PaymentWindowMinutes int
	}
	Currencies   []string
	KafkaServers string
	RedisServer  string
}
