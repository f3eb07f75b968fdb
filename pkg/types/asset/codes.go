package asset

const (
	Codespace string = "asset"

	CodeOk                 uint32 = 0
	CodeUnknownRequestType uint32 = iota + 3000
	CodeAlreadySeeded
	CodeNotSeeded
	CodeInvalidAmount
	CodeInsufficientBalance
	CodeInsufficientAllowance
	CodeInvalidQueryPath
	CodeTreeUninitialized
	CodeUnknownError
)
