package service

import "fmt"

func welcomeEmailTemplate(name, appURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s!", appName)
	body := fmt.Sprintf(`Hi %s,

Welcome to %s! We're glad to have you here.

Get started: %s

Best,
The %s Team`, name, appName, appURL, appName)

	return subject, body
}

func passwordChangedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s password was changed", appName)
	body := fmt.Sprintf(`Hi %s,

The password for your %s account was just changed.

If this wasn't you, contact your teacher or our support team right away.

Best,
The %s Team`, name, appName, appName)

	return subject, body
}

func accountDeletedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s account has been deleted", appName)
	body := fmt.Sprintf(`Hi %s,

Your %s account has been deleted. Your personal details were removed and your uploaded files are being purged.

Feedback and classroom records you took part in are kept without your name.

Best,
The %s Team`, name, appName, appName)

	return subject, body
}

func contactFormEmailTemplate(name, email, message string) (string, string) {
	subject := fmt.Sprintf("Contact Form Submission from %s", name)
	body := fmt.Sprintf("Name: %s\nEmail: %s\n\nMessage:\n%s", name, email, message)

	return subject, body
}
