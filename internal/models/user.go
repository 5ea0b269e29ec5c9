package models

// UserPreferences is owned by the user and edited through the settings
// endpoint.
type UserPreferences struct {
	Genres       []string `json:"genres" validate:"max=50,dive,required,max=64"`
	ArtStyles    []string `json:"artStyles" validate:"max=50,dive,required,max=64"`
	Tags         []string `json:"tags" validate:"max=50,dive,required,max=64"`
	ExcludedTags []string `json:"excludedTags" validate:"max=50,dive,required,max=64"`
}

type User struct {
	ID          string          `json:"id"`
	Username    string          `json:"username"`
	Preferences UserPreferences `json:"preferences"`
}
