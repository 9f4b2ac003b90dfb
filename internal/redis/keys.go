package redisx

import "fmt"

const ns = "checkout:v1"

func KeyCatalogEvent(eventID int64) string {
	return fmt.Sprintf("%s:catalog:event:%d", ns, eventID)
}

// KeyCatalogPattern matches every cached catalog entry.
func KeyCatalogPattern() string {
	return ns + ":catalog:event:*"
}

// KeyOccupancy is written by the occupancy feeder, outside this namespace.
func KeyOccupancy(eventID int64) string {
	return fmt.Sprintf("evento_%d", eventID)
}

func KeyUserLock(userID int64) string {
	return fmt.Sprintf("%s:lock:user:%d", ns, userID)
}

func KeyIdemConfirm(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:confirm:%d:%s", ns, userID, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelCatalogChanged() string {
	return ns + ":catalog:changed"
}

func ChannelSalesCompleted() string {
	return ns + ":sales:completed"
}
