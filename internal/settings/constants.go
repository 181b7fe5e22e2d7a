package settings

// Product constants and defaults.
const (
	// StartingCredits is granted to every profile at provisioning.
	StartingCredits = 10
	// AssessmentFee is the credit cost of one assessment request.
	AssessmentFee = "0.5"
	// DefaultLoanAmount is used when an assessment has no linked loan request.
	DefaultLoanAmount = 5000
	// DefaultLoanDuration is the fallback duration in months.
	DefaultLoanDuration = 12
	// DefaultLoanPurpose is the fallback purpose text.
	DefaultLoanPurpose = "Personal loan"
	// UnknownDisplayName is shown when a counterpart has no profile.
	UnknownDisplayName = "Unknown"
	// UploadHistoryLimit caps the history returned to a user.
	UploadHistoryLimit = 10
	// ShortIDLength is the length of loan request handles.
	ShortIDLength = 8
	// RequiredConfirmations is the block depth for publish and fund.
	RequiredConfirmations = 2
	// USDToETHRate converts requested amounts to ETH for on-chain proposals.
	USDToETHRate = 4100
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "trustlend:rl"
)
