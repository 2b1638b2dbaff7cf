// Package model holds the GORM models of the service.
package model

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&User{},
		&Subscription{},
		&Property{},
		&PropertyReport{},
		&CommunityProfile{},
		&CommunityLike{},
		&CommunityMatch{},
		&Conversation{},
		&Message{},
		&MessageAttachment{},
		&Payment{},
		&Notification{},
		&NotificationPreference{},
		&RoommatePost{},
		&AgencyTeamMember{},
	}
}
