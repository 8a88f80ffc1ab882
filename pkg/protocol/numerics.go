package protocol

// Numeric replies used by the property layer and the minimal client surface.
const (
	RplWelcome  = "001"
	RplISupport = "005"

	ErrNoSuchNick       = "401"
	ErrNoSuchChannel    = "403"
	ErrUnknownCommand   = "421"
	ErrNoNicknameGiven  = "431"
	ErrErroneusNickname = "432"
	ErrNicknameInUse    = "433"
	ErrNotOnChannel     = "442"
	ErrNotRegistered    = "451"
	ErrNeedMoreParams   = "461"
	ErrAlreadyRegistred = "462"

	RplPropList = "818"
	RplPropEnd  = "819"

	ErrPropDenied  = "908"
	ErrPropTooMany = "923"
)
