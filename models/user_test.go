package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegister() RegisterRequest {
	return RegisterRequest{
		Email:           "  Ada@Example.com ",
		Password:        "Sup3r$ecret",
		ConfirmPassword: "Sup3r$ecret",
		FirstName:       " Ada ",
		LastName:        "Lovelace",
	}
}

func TestRegisterRequest_Validate(t *testing.T) {
	r := validRegister()
	require.NoError(t, r.Validate())
	assert.Equal(t, "ada@example.com", r.Email)
	assert.Equal(t, "Ada", r.FirstName)

	r = validRegister()
	r.ConfirmPassword = "different"
	assert.Error(t, r.Validate())

	r = validRegister()
	r.Email = "not-an-email"
	assert.Error(t, r.Validate())

	r = validRegister()
	r.LastName = ""
	assert.Error(t, r.Validate())
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Abcdef1!"))
	assert.Error(t, ValidatePassword("Ab1!"))
	assert.Error(t, ValidatePassword("abcdefg1!"))
	assert.Error(t, ValidatePassword("ABCDEFG1!"))
	assert.Error(t, ValidatePassword("Abcdefgh!"))
	assert.Error(t, ValidatePassword("Abcdefgh1"))
}

func TestLoginRequest_Validate(t *testing.T) {
	r := LoginRequest{Email: "A@B.io", Password: "x"}
	require.NoError(t, r.Validate())
	assert.Equal(t, "a@b.io", r.Email)

	assert.Error(t, (&LoginRequest{Email: "a@b.io"}).Validate())
}

func TestSession_Summarize(t *testing.T) {
	s := Session{ID: "s1", RefreshToken: "tok"}
	assert.True(t, s.Summarize("tok").IsCurrent)
	assert.False(t, s.Summarize("other").IsCurrent)
	assert.False(t, (&Session{ID: "s2"}).Summarize("").IsCurrent)
}

func TestUpdateProfileRequest_Validate(t *testing.T) {
	ptr := func(s string) *string { return &s }

	r := UpdateProfileRequest{FirstName: ptr("  Ada "), Pseudo: ptr(" ada_l "), Lang: ptr("fr")}
	require.NoError(t, r.Validate())
	assert.Equal(t, "Ada", *r.FirstName)
	assert.Equal(t, "ada_l", *r.Pseudo)
	assert.Nil(t, r.LastName)

	empty := UpdateProfileRequest{}
	assert.NoError(t, empty.Validate())

	for name, bad := range map[string]UpdateProfileRequest{
		"blank first name": {FirstName: ptr("   ")},
		"short pseudo":     {Pseudo: ptr("ab")},
		"long pseudo":      {Pseudo: ptr("abcdefghijklmnopqrstuvwxyz012345")},
		"unknown lang":     {Lang: ptr("de")},
	} {
		assert.Error(t, bad.Validate(), name)
	}
}
