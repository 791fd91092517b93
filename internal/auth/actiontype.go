package auth

import "strings"

// ActionType is a bit-mask of account-flow action kinds an action token may
// authorize. A single token can carry several bits (e.g. an invitation that
// also pre-validates the email address).
type ActionType uint16

const (
	ActionTypeInvite ActionType = 1 << iota
	ActionTypeValidateEmail
	ActionTypeAcceptTerms
	ActionTypeAcceptPrivacy
	ActionTypeChangePassword
	ActionTypeResetPassword
	ActionTypeChangeEmail
)

// AllActionTypes lists every individual action type bit.
var AllActionTypes = []ActionType{
	ActionTypeInvite,
	ActionTypeValidateEmail,
	ActionTypeAcceptTerms,
	ActionTypeAcceptPrivacy,
	ActionTypeChangePassword,
	ActionTypeResetPassword,
	ActionTypeChangeEmail,
}

var actionTypeNames = map[ActionType]string{
	ActionTypeInvite:         "invite",
	ActionTypeValidateEmail:  "validate-email",
	ActionTypeAcceptTerms:    "accept-terms",
	ActionTypeAcceptPrivacy:  "accept-privacy-policy",
	ActionTypeChangePassword: "change-password",
	ActionTypeResetPassword:  "reset-password",
	ActionTypeChangeEmail:    "change-email",
}

// Has reports whether every bit in mask is present in t.
func (t ActionType) Has(mask ActionType) bool {
	return mask != 0 && t&mask == mask
}

// Types expands the mask into its individual bits, in declaration order.
func (t ActionType) Types() []ActionType {
	var out []ActionType
	for _, bit := range AllActionTypes {
		if t&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// String renders the mask as pipe-joined action names, e.g.
// "invite|validate-email". Unset masks render as "none".
func (t ActionType) String() string {
	if t == 0 {
		return "none"
	}
	names := make([]string, 0, len(AllActionTypes))
	for _, bit := range t.Types() {
		names = append(names, actionTypeNames[bit])
	}
	return strings.Join(names, "|")
}
