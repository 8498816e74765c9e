package redis

import "github.com/baechuer/artfront/services/visitor-state/internal/domain"

// Keys are namespaced by device id so unrelated identities never contend.

func keyEngagement(deviceID, itemID string) string {
	return "engagement:rec:" + deviceID + ":" + itemID
}

func keyEngagementIndex(deviceID string) string {
	return "engagement:idx:" + deviceID
}

func keyActiveEngagement(deviceID string) string {
	return "engagement:ptr:" + deviceID
}

func keyRecent(deviceID string) string {
	return "recent:" + deviceID
}

func keyGuestList(kind domain.ListKind, deviceID string) string {
	return "guest:" + string(kind) + ":" + deviceID
}

func keyGuestIdentities(kind domain.ListKind) string {
	return "guest:identities:" + string(kind)
}

func keyNotifyLease(deviceID, itemID string) string {
	return "notify:lease:" + deviceID + ":" + itemID
}

func keyNotifyIntent(deviceID string) string {
	return "notify:intent:" + deviceID
}

func keyNotifyLast(deviceID string) string {
	return "notify:last:" + deviceID
}

func keyRateLimit(ip string) string {
	return "ratelimit:" + ip
}
