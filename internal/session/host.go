package session

// ExpiredNotice is shown before a restored session that failed validation is
// logged out.
const ExpiredNotice = "Your login has expired. Please log in again."

// Host is the program embedding the store. It is told when the user has to
// sign in again and when a notice must be shown.
type Host interface {
	// Navigate sends the user to url.
	Navigate(url string)
	// Notify shows a message the user must acknowledge.
	Notify(message string)
}

type nopHost struct{}

func (nopHost) Navigate(string) {}
func (nopHost) Notify(string)   {}
