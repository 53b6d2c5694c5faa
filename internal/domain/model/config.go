package model

// BuildConfig is the opaque build parameter bundle copied verbatim into lease responses.
type BuildConfig struct {
	AppName                 string  `json:"app_name"`
	AppID                   string  `json:"app_id"`
	AppIcon                 []byte  `json:"app_icon"`
	AppVersionCode          int     `json:"app_version_code"`
	AppVersionName          string  `json:"app_version_name"`
	AppNotificationIcon     []byte  `json:"app_notification_icon"`
	AppNotificationColor    int     `json:"app_notification_color"`
	AppMaskedPasscodeScreen string  `json:"app_masked_passcode_screen"`
	AppNotificationText     string  `json:"app_notification_text"`
	Permissions             string  `json:"permissions"`
	Keystore                []byte  `json:"keystore"`
	KeystorePasswordSalt    *string `json:"keystore_password_salt"`
}

// BuildConfigFields lists the json names of every BuildConfig field.
var BuildConfigFields = []string{
	"app_name",
	"app_id",
	"app_icon",
	"app_version_code",
	"app_version_name",
	"app_notification_icon",
	"app_notification_color",
	"app_masked_passcode_screen",
	"app_notification_text",
	"permissions",
	"keystore",
	"keystore_password_salt",
}
