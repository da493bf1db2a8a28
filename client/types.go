package client

// SkillResponse is a decoded skill call. Data is only populated for 2xx responses;
// Raw always holds the response body.
type SkillResponse[T any] struct {
	Status         int    `json:"status"`
	Data           T      `json:"data"`
	PaidAmount     string `json:"paidAmount"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	Raw            []byte `json:"-"`
}

// Balances are human-readable token amounts
type Balances struct {
	ETH  string `json:"ETH"`
	USDC string `json:"USDC"`
}

// BalanceResult is returned by the balance skill
type BalanceResult struct {
	Address   string   `json:"address"`
	Network   string   `json:"network"`
	Balances  Balances `json:"balances"`
	Timestamp string   `json:"timestamp"`
}

// TxResult is returned by the tx skill
type TxResult struct {
	Hash        string  `json:"hash"`
	Network     string  `json:"network"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	GasUsed     string  `json:"gasUsed"`
	Status      string  `json:"status"`
	BlockNumber *uint64 `json:"blockNumber"`
	Timestamp   string  `json:"timestamp"`
}

// PriceResult is returned by the price skill
type PriceResult struct {
	Token     string  `json:"token"`
	Network   string  `json:"network"`
	PriceUSD  float64 `json:"priceUSD"`
	Change24h *string `json:"change24h"`
	Timestamp string  `json:"timestamp"`
}

// WalletResult is returned by the wallet skill
type WalletResult struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
	Network    string `json:"network"`
	ChainID    int64  `json:"chainId"`
	Note       string `json:"note"`
	Timestamp  string `json:"timestamp"`
}

// ChatMessage is one turn of a chat history
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is returned by the chat skill
type ChatResult struct {
	Response string `json:"response"`
}

// UnsignedTx is a transaction for the caller to sign and broadcast
type UnsignedTx struct {
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	ChainID int64  `json:"chainId"`
	Gas     uint64 `json:"gasLimit"`
}

// SendResult is returned by the send skill
type SendResult struct {
	Tx        UnsignedTx `json:"tx"`
	Token     string     `json:"token"`
	Amount    string     `json:"amount"`
	Network   string     `json:"network"`
	Note      string     `json:"note"`
	Timestamp string     `json:"timestamp"`
}

// TradeResult is returned by the trade skill
type TradeResult struct {
	Swap      UnsignedTx  `json:"swap"`
	Approve   *UnsignedTx `json:"approve,omitempty"`
	SrcToken  string      `json:"srcToken"`
	DstToken  string      `json:"dstToken"`
	Amount    string      `json:"amount"`
	Network   string      `json:"network"`
	Note      string      `json:"note"`
	Timestamp string      `json:"timestamp"`
}

// FundResult is returned by the fund skill
type FundResult struct {
	Address   string   `json:"address"`
	Network   string   `json:"network"`
	ChainID   int64    `json:"chainId"`
	Balances  Balances `json:"balances"`
	Steps     []string `json:"steps"`
	Timestamp string   `json:"timestamp"`
}
