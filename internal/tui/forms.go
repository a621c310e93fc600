// Package tui provides interactive prompts for commands run at a terminal.
package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/preorder/preorder-cli/internal/models"
)

// Confirm shows a yes/no confirmation prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}

// ConfirmDangerous shows a confirmation prompt for dangerous actions.
func ConfirmDangerous(message string) (bool, error) {
	var result bool
	err := huh.NewConfirm().
		Title(message).
		Description("This action cannot be undone.").
		Affirmative("Yes, I'm sure").
		Negative("Cancel").
		Value(&result).
		Run()
	if err != nil {
		return false, err
	}
	return result, nil
}

// Input shows a text input prompt prefilled with value.
func Input(title, value string) (string, error) {
	result := value
	err := huh.NewInput().
		Title(title).
		Value(&result).
		Run()
	return strings.TrimSpace(result), err
}

// InputRequired shows a required text input prompt.
func InputRequired(title, placeholder string) (string, error) {
	var result string
	err := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&result).
		Validate(required).
		Run()
	return strings.TrimSpace(result), err
}

// Password shows a masked input prompt.
func Password(title string) (string, error) {
	var result string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&result).
		Validate(required).
		Run()
	return result, err
}

// NewPassword asks for a password twice and applies the sign-up rules.
func NewPassword() (string, error) {
	var password, confirm string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Password").
			Description("At least 6 characters").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(func(s string) error {
				return models.ValidatePassword(s, s)
			}),
		huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Value(&confirm).
			Validate(func(s string) error {
				return models.ValidatePassword(password, s)
			}),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}

// Login asks for sign-in credentials. A known username is prefilled.
func Login(username string) (user, password string, err error) {
	user = username
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Username or email").
			Value(&user).
			Validate(required),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Validate(required),
	))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(user), password, nil
}

// Registration fills the sign-up form, keeping any values already in reg.
func Registration(reg models.Registration) (models.Registration, error) {
	number := string(reg.Number)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Full name").Value(&reg.Name).Validate(required),
			huh.NewInput().Title("Username").Value(&reg.Username).Validate(required),
			huh.NewInput().Title("Email").Value(&reg.Email).Validate(required),
			huh.NewInput().
				Title("Phone number").
				Description("Optional, 10 digits").
				Value(&number).
				Validate(func(s string) error {
					return models.ValidatePhone(models.Phone(strings.TrimSpace(s)))
				}),
		).Title("Create an account"),
	)
	if err := form.Run(); err != nil {
		return reg, err
	}
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Number = models.Phone(strings.TrimSpace(number))
	return reg, nil
}

// SelectOption represents an option in a select prompt.
type SelectOption struct {
	Value string
	Label string
}

// Select shows a single-select prompt.
func Select(title string, options []SelectOption) (string, error) {
	var result string
	err := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions(options)...).
		Value(&result).
		Run()
	return result, err
}

// StatusOptions lists order statuses for Select.
func StatusOptions() []SelectOption {
	opts := make([]SelectOption, len(models.OrderStatuses))
	for i, s := range models.OrderStatuses {
		opts[i] = SelectOption{Value: string(s), Label: string(s)}
	}
	return opts
}

// ItemTypeOptions lists menu sections for Select.
func ItemTypeOptions() []SelectOption {
	opts := make([]SelectOption, len(models.ItemTypes))
	for i, t := range models.ItemTypes {
		opts[i] = SelectOption{Value: string(t), Label: t.DisplayName()}
	}
	return opts
}

func huhOptions(options []SelectOption) []huh.Option[string] {
	out := make([]huh.Option[string], len(options))
	for i, opt := range options {
		out[i] = huh.NewOption(opt.Label, opt.Value)
	}
	return out
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}
