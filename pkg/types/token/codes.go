package token

const (
	Codespace string = "token"

	CodeOk                 uint32 = 0
	CodeUnknownRequestType uint32 = iota + 2000
	CodeUnauthorized
	CodeInvalidAmount
	CodeExceedsPerTxLimit
	CodeExceedsSupply
	CodeSaleClosed
	CodeNotWhitelisted
	CodeInsufficientPayment
	CodeAssetPaymentFailed
	CodeAssetLedgerNotSet
	CodeNotFound
	CodeNotOwner
	CodeAlreadyRevealed
	CodeInvalidRole
	CodeRoleAlreadyHeld
	CodeRoleNotHeld
	CodeAlreadyWhitelisted
	CodeNotOnWhitelist
	CodeInvalidQueryPath
	CodeTreeUninitialized
	CodeUnknownError
)
