package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.FacultyStatus(7), "consultease/faculty/7/status"},
		{topics.FacultyStatusUpdate(7), "consultease/faculty/7/status_update"},
		{topics.FacultyHeartbeat(42), "consultease/faculty/42/heartbeat"},
		{topics.FacultyRequests(7), "consultease/faculty/7/requests"},
		{topics.FacultyResponses(7), "consultease/faculty/7/responses"},
		{topics.AllFacultyStatus(), "consultease/faculty/+/status"},
		{topics.AllFacultyHeartbeats(), "consultease/faculty/+/heartbeat"},
		{topics.AllFacultyResponses(), "consultease/faculty/+/responses"},
		{topics.SystemNotifications(), "consultease/system/notifications"},
		{topics.SystemStatus(), "consultease/system/status"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFacultyIDFromTopic(t *testing.T) {
	tests := []struct {
		topic   string
		want    int64
		wantErr bool
	}{
		{"consultease/faculty/7/status", 7, false},
		{"consultease/faculty/1234/responses", 1234, false},
		{"consultease/faculty/abc/status", 0, true},
		{"consultease/system/notifications", 0, true},
		{"faculty/status", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := FacultyIDFromTopic(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("FacultyIDFromTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FacultyIDFromTopic(%q) = %d, want %d", tt.topic, got, tt.want)
		}
	}
}
