package solark

// Notification receives lifecycle events from the client and the poller.
type Notification interface {
	TokenRefreshed(string)
	TokenError(error)
	ReadingPublished(Reading)
	CycleError(error)
}

var NilNotification = nilNotification{}

type nilNotification struct {
}

func (n nilNotification) TokenRefreshed(_ string) {

}

func (n nilNotification) TokenError(_ error) {
}

func (n nilNotification) ReadingPublished(_ Reading) {

}

func (n nilNotification) CycleError(_ error) {
}
