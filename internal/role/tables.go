package role

import "schoolbridge/portal/internal/model"

type NavEntry struct {
	Label    string `json:"label"`
	Target   string `json:"target"`
	Icon     string `json:"icon"`
	Category string `json:"category"`
}

type Widget struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

type Theme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

type Metadata struct {
	Role        model.Role `json:"role"`
	DisplayName string     `json:"displayName"`
	Description string     `json:"description"`
	Features    []string   `json:"features"`
}

// extra is what a tenant feature unlocks for one role on top of its base set.
type extra struct {
	role       model.Role
	feature    string
	permission string
	nav        *NavEntry
}

var DefaultTheme = Theme{Primary: "#1E3A8A", Secondary: "#3B82F6"}

var basePermissions = map[model.Role][]string{
	model.RoleStudent: {
		"view_grades",
		"view_attendance",
		"view_timetable",
		"view_assignments",
		"submit_assignments",
		"view_announcements",
		"message_teachers",
	},
	model.RoleTeacher: {
		"view_classes",
		"view_students",
		"manage_attendance",
		"manage_grades",
		"create_assignments",
		"grade_assignments",
		"view_timetable",
		"view_announcements",
		"create_announcements",
		"message_parents",
		"message_students",
	},
	model.RoleParent: {
		"view_children",
		"view_child_grades",
		"view_child_attendance",
		"view_announcements",
		"view_fees",
		"message_teachers",
	},
	model.RoleAdmin: {
		"manage_users",
		"manage_school",
		"manage_tenants",
		"manage_fees",
		"manage_settings",
		"view_reports",
	},
}

var baseNavigation = map[model.Role][]NavEntry{
	model.RoleStudent: {
		{Label: "Dashboard", Target: "StudentDashboard", Icon: "home", Category: "main"},
		{Label: "Grades", Target: "Grades", Icon: "award", Category: "academics"},
		{Label: "Attendance", Target: "Attendance", Icon: "calendar", Category: "academics"},
		{Label: "Timetable", Target: "Timetable", Icon: "clock", Category: "academics"},
		{Label: "Assignments", Target: "Assignments", Icon: "file-text", Category: "academics"},
		{Label: "Messages", Target: "Messages", Icon: "message-circle", Category: "communication"},
	},
	model.RoleTeacher: {
		{Label: "Dashboard", Target: "TeacherDashboard", Icon: "home", Category: "main"},
		{Label: "Classes", Target: "Classes", Icon: "users", Category: "teaching"},
		{Label: "Attendance", Target: "TakeAttendance", Icon: "check-square", Category: "teaching"},
		{Label: "Gradebook", Target: "Gradebook", Icon: "book-open", Category: "teaching"},
		{Label: "Assignments", Target: "ManageAssignments", Icon: "file-text", Category: "teaching"},
		{Label: "Announcements", Target: "Announcements", Icon: "bell", Category: "communication"},
		{Label: "Messages", Target: "Messages", Icon: "message-circle", Category: "communication"},
	},
	model.RoleParent: {
		{Label: "Dashboard", Target: "ParentDashboard", Icon: "home", Category: "main"},
		{Label: "Children", Target: "Children", Icon: "users", Category: "family"},
		{Label: "Progress", Target: "ChildProgress", Icon: "trending-up", Category: "family"},
		{Label: "Fees", Target: "Fees", Icon: "dollar-sign", Category: "finance"},
		{Label: "Messages", Target: "Messages", Icon: "message-circle", Category: "communication"},
	},
	model.RoleAdmin: {
		{Label: "Dashboard", Target: "AdminDashboard", Icon: "home", Category: "main"},
		{Label: "Users", Target: "UserManagement", Icon: "user-plus", Category: "management"},
		{Label: "School", Target: "SchoolSettings", Icon: "settings", Category: "management"},
		{Label: "Tenants", Target: "TenantManagement", Icon: "layers", Category: "management"},
		{Label: "Finance", Target: "FinanceOverview", Icon: "dollar-sign", Category: "finance"},
		{Label: "Reports", Target: "Reports", Icon: "pie-chart", Category: "reports"},
	},
}

var baseWidgets = map[model.Role][]Widget{
	model.RoleStudent: {
		{ID: "upcoming_assignments", Title: "Upcoming Assignments", Type: "list", Priority: 2},
		{ID: "today_schedule", Title: "Today's Schedule", Type: "timeline", Priority: 1},
		{ID: "recent_grades", Title: "Recent Grades", Type: "list", Priority: 3},
		{ID: "attendance_summary", Title: "Attendance", Type: "stat", Priority: 4},
	},
	model.RoleTeacher: {
		{ID: "pending_grading", Title: "Pending Grading", Type: "stat", Priority: 2},
		{ID: "today_classes", Title: "Today's Classes", Type: "timeline", Priority: 1},
		{ID: "class_attendance", Title: "Class Attendance", Type: "chart", Priority: 3},
		{ID: "announcements", Title: "Announcements", Type: "list", Priority: 4},
	},
	model.RoleParent: {
		{ID: "children_overview", Title: "Children Overview", Type: "cards", Priority: 1},
		{ID: "fee_status", Title: "Fee Status", Type: "stat", Priority: 3},
		{ID: "child_attendance", Title: "Attendance", Type: "chart", Priority: 2},
		{ID: "teacher_messages", Title: "Messages", Type: "list", Priority: 4},
	},
	model.RoleAdmin: {
		{ID: "school_stats", Title: "School Statistics", Type: "stat", Priority: 1},
		{ID: "fee_collection", Title: "Fee Collection", Type: "chart", Priority: 3},
		{ID: "user_activity", Title: "User Activity", Type: "chart", Priority: 2},
		{ID: "system_alerts", Title: "System Alerts", Type: "list", Priority: 4},
	},
}

var themes = map[model.Role]Theme{
	model.RoleStudent: {Primary: "#4F46E5", Secondary: "#818CF8"},
	model.RoleTeacher: {Primary: "#059669", Secondary: "#34D399"},
	model.RoleParent:  {Primary: "#D97706", Secondary: "#FBBF24"},
	model.RoleAdmin:   {Primary: "#DC2626", Secondary: "#F87171"},
}

var metadata = map[model.Role]Metadata{
	model.RoleStudent: {
		Role:        model.RoleStudent,
		DisplayName: "Student",
		Description: "Follow classes, grades and assignments",
		Features:    []string{"attendance_tracking", "online_learning", "library", "messaging"},
	},
	model.RoleTeacher: {
		Role:        model.RoleTeacher,
		DisplayName: "Teacher",
		Description: "Run classes, take attendance and grade work",
		Features:    []string{"attendance_tracking", "online_learning", "analytics", "messaging"},
	},
	model.RoleParent: {
		Role:        model.RoleParent,
		DisplayName: "Parent",
		Description: "Keep track of your children's progress and fees",
		Features:    []string{"attendance_tracking", "fee_payment", "transport", "messaging", "parent_portal"},
	},
	model.RoleAdmin: {
		Role:        model.RoleAdmin,
		DisplayName: "Administrator",
		Description: "Manage the school, its users and settings",
		Features: []string{
			"attendance_tracking", "online_learning", "fee_payment", "messaging",
			"parent_portal", "library", "transport", "analytics",
		},
	},
}

var featureExtras = []extra{
	{role: model.RoleStudent, feature: "online_learning", permission: "access_online_classes",
		nav: &NavEntry{Label: "Online Classes", Target: "OnlineClasses", Icon: "video", Category: "learning"}},
	{role: model.RoleTeacher, feature: "online_learning", permission: "host_online_classes",
		nav: &NavEntry{Label: "Online Classes", Target: "OnlineClasses", Icon: "video", Category: "teaching"}},
	{role: model.RoleStudent, feature: "library", permission: "borrow_books",
		nav: &NavEntry{Label: "Library", Target: "Library", Icon: "book", Category: "resources"}},
	{role: model.RoleTeacher, feature: "analytics", permission: "view_analytics",
		nav: &NavEntry{Label: "Analytics", Target: "Analytics", Icon: "bar-chart", Category: "reports"}},
	{role: model.RoleParent, feature: "transport", permission: "track_transport",
		nav: &NavEntry{Label: "Transport", Target: "Transport", Icon: "truck", Category: "services"}},
	{role: model.RoleParent, feature: "fee_payment", permission: "pay_fees",
		nav: &NavEntry{Label: "Pay Fees", Target: "FeePayment", Icon: "credit-card", Category: "finance"}},
	{role: model.RoleAdmin, feature: "analytics",
		nav: &NavEntry{Label: "Analytics", Target: "Analytics", Icon: "bar-chart", Category: "reports"}},
	{role: model.RoleAdmin, feature: "library",
		nav: &NavEntry{Label: "Library", Target: "LibraryManagement", Icon: "book", Category: "management"}},
}

// AllPermissions is every permission any role can hold, feature extras
// included. Admin holds all of them.
var AllPermissions = collectPermissions()

func collectPermissions() []string {
	var all []string
	for _, r := range model.Roles {
		all = append(all, basePermissions[r]...)
	}
	for _, e := range featureExtras {
		if e.permission != "" {
			all = append(all, e.permission)
		}
	}
	return dedupe(all)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
