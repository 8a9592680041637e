package chat

import "fmt"

func chatLine(nickname, text string) string {
	return fmt.Sprintf("%s: %s", nickname, text)
}

func greeting(nickname string) string {
	return fmt.Sprintf("Welcome to the chat, %s! Commands: /nickname <name>, /private <name> <text>, "+
		"/delay <minutes> <text>, /complain <name>, /quit", nickname)
}

func joined(nickname string) string {
	return fmt.Sprintf("%s joined the chat", nickname)
}

func departed(nickname string) string {
	return fmt.Sprintf("%s left the chat", nickname)
}

func notFound(nickname string) string {
	return fmt.Sprintf("User %s not found", nickname)
}

func noSuchCommand(name string) string {
	return fmt.Sprintf("No such command: /%s", name)
}

const shutdownNotice = "Server is shutting down"
