package grass

// The network wraps every response in {"result": {"data": ...}} and signals
// failures through {"error": {"message": ...}}.
type envelope[T any] struct {
	Result struct {
		Data T `json:"data"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e envelope[T]) errMessage(fallback string) string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return fallback
}

type registerReq struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Username       string `json:"username"`
	ReferralCode   string `json:"referralCode,omitempty"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type registerData struct {
	UserID string `json:"userId"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

type userData struct {
	UserID                  string `json:"userId"`
	Email                   string `json:"email"`
	IsVerified              bool   `json:"isVerified"`
	WalletAddress           string `json:"walletAddress"`
	IsWalletAddressVerified bool   `json:"isWalletAddressVerified"`
}

type sendVerificationReq struct {
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

type confirmTokenReq struct {
	Token string `json:"token"`
}

type linkWalletReq struct {
	WalletAddress string `json:"walletAddress"`
}

type pointsData struct {
	Points float64 `json:"points"`
}

type deviceData struct {
	DeviceID string `json:"deviceId"`
	IPScore  int    `json:"ipScore"`
}
