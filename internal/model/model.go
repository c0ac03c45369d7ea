package model

// Account is one parsed line of the accounts file. Password may be generated
// when the line carried only an email; IMAPPassword is empty unless the line
// (or the single-IMAP override) provided one.
type Account struct {
	Email        string
	Password     string
	IMAPPassword string
}

// Binding pairs an account with the proxy it is permanently assigned to.
// Wallet is set only when wallet linking was requested.
type Binding struct {
	ID      int
	Account Account
	Proxy   string
	Wallet  string
}

// LoginData is the cached credential row for an (email, deviceID) pair.
type LoginData struct {
	Email       string
	UserID      string
	DeviceID    string
	AccessToken string
}

type PointStat struct {
	UserID string
	Email  string
	Points float64
}

// Mode is the single workflow selected for a whole run.
type Mode int

const (
	ModeMining Mode = iota
	ModeRegister
	ModeApprove
	ModeClaim
)

func (m Mode) String() string {
	switch m {
	case ModeRegister:
		return "register"
	case ModeApprove:
		return "approve"
	case ModeClaim:
		return "claim"
	default:
		return "mining"
	}
}
