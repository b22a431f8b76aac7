package notification

import (
	"fmt"
	"strings"
)

// NotificationType is a closed set of known sources. Per-type behavior lives
// in the typeTable, not in methods overridden per type.
type NotificationType int

const (
	TypeUnknown NotificationType = iota
	TypeGenericSMS
	TypeGenericEmail
	TypeGenericCalendar
	TypeGenericNavigation
	TypeGenericAlarmClock
	TypeFitness
	TypeReminder
	TypeWhatsApp
	TypeTelegram
	TypeSignal
	TypeThreema
	TypeDiscord
	TypeSlack
	TypeFacebookMessenger
	TypeTwitter
	TypeGmail
	TypeK9Mail
	TypeConversations

	typeCount
)

type typeInfo struct {
	name  string
	color byte
	// repeatExempt sources post the same timestamp for every progress update.
	repeatExempt bool
	// allowOngoing lets ongoing events through the ongoing filter.
	allowOngoing bool
}

var typeTable = [typeCount]typeInfo{
	TypeUnknown:           {name: "unknown", color: ColorRed},
	TypeGenericSMS:        {name: "generic_sms", color: ColorVividViolet},
	TypeGenericEmail:      {name: "generic_email", color: ColorJaegerGreen},
	TypeGenericCalendar:   {name: "generic_calendar", color: ColorBlueMoon},
	TypeGenericNavigation: {name: "generic_navigation", color: ColorOrange, allowOngoing: true},
	TypeGenericAlarmClock: {name: "generic_alarm_clock", color: ColorRed, allowOngoing: true},
	TypeFitness:           {name: "fitness", color: ColorIslamicGreen, repeatExempt: true, allowOngoing: true},
	TypeReminder:          {name: "reminder", color: ColorChromeYellow, allowOngoing: true},
	TypeWhatsApp:          {name: "whatsapp", color: ColorIslamicGreen},
	TypeTelegram:          {name: "telegram", color: ColorPictonBlue},
	TypeSignal:            {name: "signal", color: ColorBlueMoon},
	TypeThreema:           {name: "threema", color: ColorJaegerGreen},
	TypeDiscord:           {name: "discord", color: ColorVividCerulean},
	TypeSlack:             {name: "slack", color: ColorPurple},
	TypeFacebookMessenger: {name: "facebook_messenger", color: ColorBlueMoon},
	TypeTwitter:           {name: "twitter", color: ColorPictonBlue},
	TypeGmail:             {name: "gmail", color: ColorOrange},
	TypeK9Mail:            {name: "k9mail", color: ColorJaegerGreen},
	TypeConversations:     {name: "conversations", color: ColorInchworm},
}

var sourceTypes = map[string]NotificationType{
	"com.android.mms":                   TypeGenericSMS,
	"com.google.android.apps.messaging": TypeGenericSMS,
	"com.samsung.android.messaging":     TypeGenericSMS,
	"com.android.email":                 TypeGenericEmail,
	"com.google.android.calendar":       TypeGenericCalendar,
	"com.android.calendar":              TypeGenericCalendar,
	"com.google.android.apps.maps":      TypeGenericNavigation,
	"net.osmand.plus":                   TypeGenericNavigation,
	"com.google.android.deskclock":      TypeGenericAlarmClock,
	"com.android.deskclock":             TypeGenericAlarmClock,
	"com.google.android.apps.fitness":   TypeFitness,
	"de.dennisguse.opentracks":          TypeFitness,
	"com.strava":                        TypeFitness,
	"com.runtastic.android":             TypeFitness,
	"com.google.android.apps.reminders": TypeReminder,
	"org.dmfs.tasks":                    TypeReminder,
	"com.whatsapp":                      TypeWhatsApp,
	"com.whatsapp.w4b":                  TypeWhatsApp,
	"org.telegram.messenger":            TypeTelegram,
	"org.thunderdog.challegram":         TypeTelegram,
	"org.thoughtcrime.securesms":        TypeSignal,
	"ch.threema.app":                    TypeThreema,
	"com.discord":                       TypeDiscord,
	"com.Slack":                         TypeSlack,
	"com.facebook.orca":                 TypeFacebookMessenger,
	"com.twitter.android":               TypeTwitter,
	"com.google.android.gm":             TypeGmail,
	"com.fsck.k9":                       TypeK9Mail,
	"eu.siacs.conversations":            TypeConversations,
	"org.fdroid.fdroid":                 TypeUnknown,
}

// TypeForSource classifies a source package; unknown sources map to TypeUnknown.
func TypeForSource(sourceAppID string) NotificationType {
	if t, ok := sourceTypes[sourceAppID]; ok {
		return t
	}
	return TypeUnknown
}

func (t NotificationType) info() typeInfo {
	if t < 0 || t >= typeCount {
		return typeTable[TypeUnknown]
	}
	return typeTable[t]
}

func (t NotificationType) Known() bool { return t > TypeUnknown && t < typeCount }

// Color is the fixed Pebble color of a known type.
func (t NotificationType) Color() byte { return t.info().color }

// RepeatExempt reports whether the type skips old-repeat prevention.
func (t NotificationType) RepeatExempt() bool { return t.info().repeatExempt }

// AllowOngoing reports whether ongoing events of this type pass the ongoing filter.
func (t NotificationType) AllowOngoing() bool { return t.info().allowOngoing }

func (t NotificationType) String() string {
	if t < 0 || t >= typeCount {
		return fmt.Sprintf("NotificationType(%d)", int(t))
	}
	return typeTable[t].name
}

func (t NotificationType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *NotificationType) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, ti := range typeTable {
		if ti.name == s {
			*t = NotificationType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown notification type %q", s)
}
