package repair

import "time"

// backoffDelay doubles from one second per delivery, capped at a minute.
func backoffDelay(numDelivered uint64) time.Duration {
	attempt := int(min(numDelivered, 16))
	if attempt < 1 {
		attempt = 1
	}
	sec := 1 << (attempt - 1)
	if sec > 60 {
		sec = 60
	}
	return time.Duration(sec) * time.Second
}
