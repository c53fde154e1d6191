package models

// AlertType 报警类型（与移动端上报的 incident type 一致）
type AlertType string

const (
	AlertSOSTriggered      AlertType = "SOS_TRIGGERED"
	AlertFallDetected      AlertType = "FALL_DETECTED"
	AlertPanicButton       AlertType = "PANIC_BUTTON"
	AlertThrownAway        AlertType = "THROWN_AWAY"
	AlertFakeShutdown      AlertType = "FAKE_SHUTDOWN"
	AlertGeofenceViolation AlertType = "GEOFENCE_VIOLATION"
	AlertBatteryLow        AlertType = "BATTERY_LOW"
	AlertDeviceOffline     AlertType = "DEVICE_OFFLINE"
	AlertLocationLost      AlertType = "LOCATION_LOST"
	AlertUnusualActivity   AlertType = "UNUSUAL_ACTIVITY"
	AlertEmergencyContact  AlertType = "EMERGENCY_CONTACT"
	AlertSystemAlert       AlertType = "SYSTEM_ALERT"
)

// Priority 报警优先级
type Priority string

const (
	PriorityEmergency Priority = "EMERGENCY"
	PriorityCritical  Priority = "CRITICAL"
	PriorityHigh      Priority = "HIGH"
	PriorityMedium    Priority = "MEDIUM"
	PriorityLow       Priority = "LOW"
)

// priorityTable 报警类型 → 默认优先级映射
var priorityTable = map[AlertType]Priority{
	AlertSOSTriggered:      PriorityEmergency,
	AlertPanicButton:       PriorityEmergency,
	AlertThrownAway:        PriorityEmergency,
	AlertFakeShutdown:      PriorityEmergency,
	AlertFallDetected:      PriorityCritical,
	AlertEmergencyContact:  PriorityCritical,
	AlertLocationLost:      PriorityHigh,
	AlertGeofenceViolation: PriorityHigh,
	AlertDeviceOffline:     PriorityMedium,
	AlertUnusualActivity:   PriorityMedium,
	AlertBatteryLow:        PriorityLow,
	AlertSystemAlert:       PriorityLow,
}

// IsValid 检查报警类型是否有效
func (t AlertType) IsValid() bool {
	_, ok := priorityTable[t]
	return ok
}

// DefaultPriority 根据报警类型推导默认优先级
// 未知类型返回 PriorityLow
func DefaultPriority(t AlertType) Priority {
	if p, ok := priorityTable[t]; ok {
		return p
	}
	return PriorityLow
}

// RequiresResponse 该报警类型是否需要监护人响应
// EMERGENCY 和 CRITICAL 级别的报警需要人工确认
func RequiresResponse(t AlertType) bool {
	p := DefaultPriority(t)
	return p == PriorityEmergency || p == PriorityCritical
}

// DefaultMessage 根据报警类型生成默认的人类可读消息
func DefaultMessage(t AlertType, wardName string) string {
	if wardName == "" {
		wardName = "your ward"
	}

	switch t {
	case AlertSOSTriggered:
		return wardName + " has triggered an SOS alert. Immediate attention required."
	case AlertFallDetected:
		return "A potential fall has been detected for " + wardName + ". Please check on them immediately."
	case AlertPanicButton:
		return wardName + " has pressed the panic button. Immediate attention required."
	case AlertThrownAway:
		return wardName + "'s device may have been thrown away or forcibly removed. Please check on them immediately."
	case AlertFakeShutdown:
		return wardName + "'s device reported a forced shutdown attempt. Please check on them immediately."
	case AlertGeofenceViolation:
		return wardName + " has left a designated safe zone."
	case AlertBatteryLow:
		return wardName + "'s device battery is running low."
	case AlertDeviceOffline:
		return wardName + "'s device has gone offline."
	case AlertLocationLost:
		return "Location tracking for " + wardName + " has been lost."
	case AlertUnusualActivity:
		return "Unusual activity has been detected for " + wardName + "."
	case AlertEmergencyContact:
		return wardName + " has requested emergency contact."
	default:
		return "A safety alert has been raised for " + wardName + "."
	}
}
