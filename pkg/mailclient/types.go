package mailclient

const (
	TLSModeStartTLS = "starttls"
	TLSModeImplicit = "tls"
	TLSModeNone     = "none"
)

// Credential is the SMTP account one sender logs in with.
type Credential struct {
	ServerHost   string `json:"server_host" validate:"required"`
	ServerPort   int    `json:"server_port" validate:"required,min=1,max=65535"`
	TLSMode      string `json:"tls_mode" validate:"omitempty,oneof=starttls tls none"`
	AuthIdentity string `json:"auth_identity" validate:"-"` //  Authorization identity may be left blank to indicate that it is the same as the username.
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required"`
}

// Message is one rendered email to exactly one recipient.
type Message struct {
	FromAddr string `json:"from_addr" validate:"required,email"`
	FromName string `json:"from_name"`
	ToAddr   string `json:"to_addr" validate:"required,email"`
	ToName   string `json:"to_name"`
	Subject  string `json:"subject" validate:"required"`
	Body     string `json:"body" validate:"required"`
}
