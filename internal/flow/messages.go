package flow

import (
	"fmt"
	"strings"
)

// 面向用户的回复文本。
const (
	MsgAlreadyLoggedIn    = "You are already logged in. Use /logout if you want to log out."
	MsgLoginInProgress    = "You are already in a login process. Please complete the current process or wait a moment before trying again."
	MsgEnterEmail         = "Please enter your email address to begin login:"
	MsgInvalidEmail       = "Invalid email format. Please enter a valid email address:"
	MsgTooManyEmail       = "Too many invalid email attempts. Please start over with /login"
	MsgOTPSent            = "An OTP has been sent to your email. Please enter the 6-digit OTP:"
	MsgLoginRequestFailed = "Login request failed. Please try again."
	MsgInvalidOTP         = "Invalid OTP. Please enter the 6-digit code:"
	MsgTooManyOTP         = "Too many invalid OTP attempts. Please start over with /login"
	MsgLoginSuccess       = "Login successful! You are now authenticated."
	MsgOTPFailed          = "OTP verification failed. Please start over with /login"
	MsgLoginError         = "An error occurred during login. Please try again."
	MsgLoginTimedOut      = "Login process timed out. Please start over with /login"

	MsgLoggedOut   = "You have been logged out successfully."
	MsgNotLoggedIn = "You are not currently logged in."

	MsgLoginRequired      = "You need to be logged in to use this command. Please use /login."
	MsgProcessInProgress  = "You are already in a process. Please complete it first or wait before trying again."
	MsgTransferStart      = "Let's start your transfer. Please enter the network name (e.g., POLYGON):"
	MsgEnterToken         = "Enter the token address (send NATIVE or leave empty for native tokens):"
	MsgEnterQuantity      = "Enter the quantity to transfer:"
	MsgInvalidQuantity    = "Invalid quantity. Please enter a valid number greater than 0:"
	MsgEnterRecipient     = "Enter the recipient's address:"
	MsgInvalidRecipient   = "Invalid address format. Please enter a valid Ethereum address:"
	MsgConfirmPrompt      = `Please type "CONFIRM" to proceed or "CANCEL" to abort:`
	MsgTransferCanceled   = "Transfer process has been canceled."
	MsgProcessingTransfer = "Processing your transfer... ⌛"
	MsgTransferSucceeded  = "✅ Transfer successful!"
	MsgTransferError      = "❌ An error occurred while processing your transfer. Please try again."
	MsgTransferTimedOut   = "Transfer process timed out. Please start over with /transfer."

	MsgNothingToCancel = "There is no active process to cancel."
	MsgLoginCanceled   = "Login process has been canceled."
)

func invalidNetworkMessage(networks []string) string {
	return fmt.Sprintf("Invalid network name. Please enter a valid network (e.g., %s):", strings.Join(networks, ", "))
}

func transferSucceededMessage(orderID string) string {
	if orderID == "" {
		return MsgTransferSucceeded
	}
	return fmt.Sprintf("%s Order ID: %s", MsgTransferSucceeded, orderID)
}

func transferFailedMessage(upstream string) string {
	if upstream == "" {
		upstream = "Unknown error"
	}
	return "❌ Transfer failed. Error: " + upstream
}

func confirmationMessage(data TransferData, contractWarning bool) string {
	token := data.TokenAddress
	if token == "" {
		token = "Native Token"
	}
	var b strings.Builder
	b.WriteString("Please confirm the transfer details:\n")
	fmt.Fprintf(&b, "- Network: %s\n", data.NetworkName)
	fmt.Fprintf(&b, "- Token Address: %s\n", token)
	fmt.Fprintf(&b, "- Quantity: %s\n", data.Quantity)
	fmt.Fprintf(&b, "- Recipient Address: %s\n", data.RecipientAddress)
	if contractWarning {
		fmt.Fprintf(&b, "\n⚠️ The recipient is a smart contract on %s. Make sure it can receive this token.\n", data.NetworkName)
	}
	b.WriteString("\nType \"CONFIRM\" to proceed or \"CANCEL\" to abort.")
	return b.String()
}

func timedOutMessage(kind Kind) string {
	if kind == KindTransfer {
		return MsgTransferTimedOut
	}
	return MsgLoginTimedOut
}
