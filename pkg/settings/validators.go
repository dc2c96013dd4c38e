package settings

type UpdateSettingsPayload struct {
	Template   *string `json:"template,omitempty" mod:"trim" validate:"omitempty,template,max=200"`
	RenameMode *string `json:"rename_mode,omitempty" validate:"omitempty,oneof=auto manual replace"`
	MediaType  *string `json:"media_type,omitempty" validate:"omitempty,oneof=document auto"`
}
