package otc

import "errors"

// Category groups error codes by the kind of failure so transports can map
// them onto their own status space.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryState         Category = "state"
	CategoryInput         Category = "input"
	CategoryCapacity      Category = "capacity"
	CategoryArithmetic    Category = "arithmetic"
	CategoryConfiguration Category = "configuration"
	CategoryCustody       Category = "custody"
)

// Error is a typed protocol failure. Values are compared by identity, so
// wrapped errors match with errors.Is.
type Error struct {
	Code     string
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return "otc: " + e.Message
}

func newError(category Category, code, message string) *Error {
	return &Error{Code: code, Category: category, Message: message}
}

var (
	ErrUnauthorizedAdmin   = newError(CategoryAuthorization, "UnauthorizedAdmin", "caller is not the admin")
	ErrInvalidAdmin        = newError(CategoryAuthorization, "InvalidAdmin", "invalid admin address")
	ErrUnauthorizedMaker   = newError(CategoryAuthorization, "UnauthorizedMaker", "caller is not the offer maker")
	ErrInvalidMaker        = newError(CategoryAuthorization, "InvalidMaker", "invalid maker")
	ErrTakerNotWhitelisted = newError(CategoryAuthorization, "TakerNotWhitelisted", "taker is not whitelisted")

	ErrInvalidOfferStatus      = newError(CategoryState, "InvalidOfferStatus", "invalid offer status")
	ErrOfferExpired            = newError(CategoryState, "OfferExpired", "offer has expired")
	ErrOfferNotExpired         = newError(CategoryState, "OfferNotExpired", "offer has not expired")
	ErrCannotCancelOffer       = newError(CategoryState, "CannotCancelOffer", "offer cannot be cancelled by caller before the deadline")
	ErrOfferNotFound           = newError(CategoryState, "OfferNotFound", "offer not found")
	ErrOfferAlreadyExists      = newError(CategoryState, "OfferAlreadyExists", "offer id already used by maker")
	ErrAdminAlreadyInitialized = newError(CategoryState, "AdminAlreadyInitialized", "admin already initialized")

	ErrInvalidAmount           = newError(CategoryInput, "InvalidAmount", "amount must be greater than zero")
	ErrInsufficientAmount      = newError(CategoryInput, "InsufficientAmount", "amount exceeds remaining offer balance")
	ErrInvalidDeadline         = newError(CategoryInput, "InvalidDeadline", "deadline must be in the future")
	ErrInvalidFeePercentage    = newError(CategoryInput, "InvalidFeePercentage", "fee percentage exceeds 10000 basis points")
	ErrInvalidAddress          = newError(CategoryInput, "InvalidAddress", "invalid address")
	ErrInvalidTokenMint        = newError(CategoryInput, "InvalidTokenMint", "input and output assets must differ")
	ErrEmptyTakersList         = newError(CategoryInput, "EmptyTakersList", "no takers supplied")
	ErrEmptyMintsList          = newError(CategoryInput, "EmptyMintsList", "no mints supplied")
	ErrTakerAlreadyWhitelisted = newError(CategoryInput, "TakerAlreadyWhitelisted", "taker already whitelisted")
	ErrMintAlreadyWhitelisted  = newError(CategoryInput, "MintAlreadyWhitelisted", "mint already whitelisted")
	ErrMintNotWhitelisted      = newError(CategoryInput, "MintNotWhitelisted", "mint is not whitelisted")

	ErrWhitelistFull = newError(CategoryCapacity, "WhitelistFull", "taker whitelist is full")
	ErrTooManyMints  = newError(CategoryCapacity, "TooManyMints", "mint whitelist is full")
	ErrMakerQuota    = newError(CategoryCapacity, "MakerQuotaExceeded", "maker exceeded the offer creation quota")

	ErrCalculationError = newError(CategoryArithmetic, "CalculationError", "arithmetic overflow or division by zero")
	ErrSequenceOverflow = newError(CategoryArithmetic, "SequenceOverflow", "counter overflow")

	ErrAdminNotInitialized     = newError(CategoryConfiguration, "AdminNotInitialized", "admin config not initialized")
	ErrFeeConfigNotInitialized = newError(CategoryConfiguration, "FeeConfigNotInitialized", "fee config not initialized")

	ErrInvalidVaultOwner = newError(CategoryCustody, "InvalidVaultOwner", "vault authority mismatch")
)

// AsError extracts the typed protocol error from err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
