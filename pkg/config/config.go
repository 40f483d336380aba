package config

import (
	"time"
)

type DB struct {
	Url string `envconfig:"URL"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Jwt *Jwt `envconfig:"JWT"`
}

type Redis struct {
	URL          string        `envconfig:"URL"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"escrow:"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

type Paystack struct {
	SecretKey         string        `envconfig:"SECRET_KEY"`
	BaseURL           string        `envconfig:"BASE_URL" default:"https://api.paystack.co"`
	EmailDomain       string        `envconfig:"EMAIL_DOMAIN" default:"escrow.local"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	RequestsPerSecond float64       `envconfig:"REQUESTS_PER_SECOND" default:"5"`
	Burst             int           `envconfig:"BURST" default:"5"`
}

//revive:disable
type Stripe struct {
	ApiKey        string `envconfig:"API_KEY"`
	SigningSecret string `envconfig:"SIGNING_SECRET"`
	SuccessURL    string `envconfig:"SUCCESS_URL" default:"http://localhost:3000/payment/success"`
	CancelURL     string `envconfig:"CANCEL_URL" default:"http://localhost:3000/payment/cancel"`
}

//revive:enable
type MockPayment struct {
	SigningSecret string `envconfig:"SIGNING_SECRET" default:"mock-signing-secret"`
	PayBaseURL    string `envconfig:"PAY_BASE_URL" default:"http://localhost:3000/mock/pay"`
	FailInitiate  bool   `envconfig:"FAIL_INITIATE" default:"false"`
}

type PaymentProviders struct {
	Name     string       `envconfig:"NAME" default:"mock"`
	Paystack *Paystack    `envconfig:"PAYSTACK"`
	Stripe   *Stripe      `envconfig:"STRIPE"`
	Mock     *MockPayment `envconfig:"MOCK"`
}

// Escrow holds the business rules of the broker.
type Escrow struct {
	// MinAmount is the smallest buy request in minor currency units.
	MinAmount int64  `envconfig:"MIN_AMOUNT" default:"100"`
	Currency  string `envconfig:"CURRENCY" default:"NGN"`
	// FeeBasisPoints is the release fee, 50 = 0.5%.
	FeeBasisPoints int64 `envconfig:"FEE_BASIS_POINTS" default:"50"`
	// PaymentTolerance is the largest |paid - amount| accepted without a review flag.
	PaymentTolerance  int64         `envconfig:"PAYMENT_TOLERANCE" default:"0"`
	OperatorIDs       []string      `envconfig:"OPERATOR_IDS"`
	CallbackURL       string        `envconfig:"CALLBACK_URL" default:"http://localhost:3000/payment/callback"`
	StoreTimeout      time.Duration `envconfig:"STORE_TIMEOUT" default:"3s"`
	GatewayTimeout    time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`
	ReconcileAttempts int           `envconfig:"RECONCILE_ATTEMPTS" default:"3"`
	ArchiveInterval   time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"1h"`
	ArchiveAge        time.Duration `envconfig:"ARCHIVE_AGE" default:"720h"`
}

// IsOperator reports whether userID is a configured operator identity.
func (e *Escrow) IsOperator(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range e.OperatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type EventBus struct {
	Driver string `envconfig:"DRIVER" default:"memory"`
	Stream string `envconfig:"STREAM" default:"events"`
	Group  string `envconfig:"GROUP" default:"escrow"`
}

type Presenter struct {
	Driver       string   `envconfig:"DRIVER" default:"log"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic        string   `envconfig:"TOPIC" default:"escrow.presentation"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"text"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[escrow]"`
}

type Server struct {
	Scheme      string        `envconfig:"SCHEME" default:"http"`
	Host        string        `envconfig:"HOST" default:"localhost"`
	Port        int           `envconfig:"PORT" default:"3000"`
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
}

type App struct {
	Env              string            `envconfig:"APP_ENV" default:"development"`
	Server           *Server           `envconfig:"SERVER"`
	Log              *Log              `envconfig:"LOG"`
	DB               *DB               `envconfig:"DATABASE"`
	Auth             *Auth             `envconfig:"AUTH"`
	Redis            *Redis            `envconfig:"REDIS"`
	RateLimit        *RateLimit        `envconfig:"RATE_LIMIT"`
	PaymentProviders *PaymentProviders `envconfig:"PAYMENT_PROVIDER"`
	Escrow           *Escrow           `envconfig:"ESCROW"`
	EventBus         *EventBus         `envconfig:"EVENTBUS"`
	Presenter        *Presenter        `envconfig:"PRESENTER"`
}
