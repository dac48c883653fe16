package constants

// Header names consumed from the reverse proxy's forward-auth callback.
const (
	HeaderXForwardedMethod = "X-Forwarded-Method"
	HeaderXForwardedHost   = "X-Forwarded-Host"
	HeaderXForwardedURI    = "X-Forwarded-Uri"
	HeaderXForwardedProto  = "X-Forwarded-Proto"
	HeaderXForwardedFor    = "X-Forwarded-For"
	HeaderXRealIP          = "X-Real-Ip"
	HeaderTrueClientIP     = "True-Client-Ip"
	HeaderCFConnectingIP   = "CF-Connecting-IP"
)

// Header names attached to responses.
const (
	HeaderXCountryCode = "X-Country-Code"
	HeaderXCityEnName  = "X-City-En-Name"
	HeaderLocation     = "Location"

	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"

	HeaderXContentTypeOptions = "X-Content-Type-Options"
	HeaderXFrameOptions       = "X-Frame-Options"
	HeaderReferrerPolicy      = "Referrer-Policy"
)

// Header values.
const (
	ContentTypeJSON            = "application/json"
	BearerPrefix               = "Bearer "
	ContentTypeOptionsNoSniff  = "nosniff"
	FrameOptionsDeny           = "DENY"
	ReferrerPolicyStrictOrigin = "strict-origin-when-cross-origin"
)

// Machine-readable error codes returned in JSON error envelopes.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeValidationError    = "validation_error"
	CodeAuthError          = "auth_error"
	CodeNotFound           = "not_found"
	CodeStorageError       = "storage_error"
	CodeInternalError      = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
)

// Common messages.
const (
	MsgAuthRequired   = "A valid secret token is required"
	MsgInvalidIP      = "Client IP address is missing or malformed"
	MsgServiceHealthy = "healthy"
)
