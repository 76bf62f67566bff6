package apperr

const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	CodeBadRequest          = "BAD_REQUEST"
	CodeInvalidAction       = "INVALID_ACTION"
	CodeServerNotFound      = "SERVER_NOT_FOUND"
	CodeNodeNotFound        = "NODE_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeBackupNotFound      = "BACKUP_NOT_FOUND"
	CodeSubuserNotFound     = "SUBUSER_NOT_FOUND"
	CodeCredentialNotFound  = "CREDENTIAL_NOT_FOUND"
	CodePortAlreadyUsed     = "PORT_ALREADY_USED"
	CodeNotEnoughPorts      = "NOT_ENOUGH_PORTS_ON_NODE"
	CodeServerIDExhausted   = "SERVER_ID_EXHAUSTED"
	CodeServerNameExists    = "SERVER_NAME_ALREADY_EXISTS"
	CodeNodeAlreadyExists   = "NODE_ALREADY_EXISTS"
	CodeNodeHasServers      = "NODE_HAS_SERVERS"
	CodeCannotDeleteSuper   = "CANNOT_DELETE_SUPERUSER"
	CodeEmailExists         = "EMAIL_ALREADY_EXISTS"
	CodeNameExists          = "NAME_ALREADY_EXISTS"
	CodeUsernameExists      = "USERNAME_ALREADY_EXISTS"
	CodeInvalidName         = "INVALID_NAME"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeCannotChangeSuper   = "CANNOT_CHANGE_SUPERUSER_STATUS"
	CodePluginsUnsupported  = "PLUGIN_INSTALL_NOT_SUPPORTED"
	CodeKeyNameExists       = "KEY_NAME_EXISTS"
	CodeInvalidKeyName      = "INVALID_KEY_NAME"
	CodeInvalidCapability   = "INVALID_CAPABILITY"
	CodeCapabilityNotHeld   = "CAPABILITY_NOT_HELD"
	CodeMaxBackups          = "MAXIMUM_BACKUPS_REACHED"
	CodeBackupInProgress    = "BACKUP_IN_PROGRESS"
	CodeBackupExists        = "BACKUP_ALREADY_EXISTS"
	CodeUserHasServers      = "USER_HAS_SERVERS"
	CodeSubuserExists       = "SUBUSER_ALREADY_EXISTS"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeServerSuspended     = "SERVER_SUSPENDED"
	CodeGameNotSupported    = "SERVER_GAME_NOT_SUPPORTED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeRateLimited         = "RATE_LIMITED"
	CodeCouldNotConnect     = "COULD_NOT_CONNECT_TO_NODE"
	CodeInvalidNodeResponse = "INVALID_RESPONSE_FROM_NODE"
	CodeDaemonDisconnected  = "DAEMON_DISCONNECTED"
	CodeDatabaseUnavailable = "DATABASE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

func ErrUnauthorized() *Error {
	return New(Unauthorized, CodeUnauthorized, "Access token is missing or invalid")
}

func ErrForbidden() *Error {
	return New(Forbidden, CodeForbidden, "You don't have the required permissions to access this resource")
}

func ErrSuspended() *Error {
	return New(Forbidden, CodeAccountSuspended, "Your account is suspended")
}

func ErrBadRequest(message string) *Error {
	return New(Invalid, CodeBadRequest, message)
}

func ErrServerNotFound() *Error {
	return New(NotFound, CodeServerNotFound, "Server not found")
}

func ErrNodeNotFound() *Error {
	return New(NotFound, CodeNodeNotFound, "Node not found")
}

func ErrUserNotFound() *Error {
	return New(NotFound, CodeUserNotFound, "User not found")
}

func ErrInternal(err error) *Error {
	return Wrap(err, Internal, CodeInternal, "Internal server error")
}
