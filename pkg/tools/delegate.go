package tools

const (
	DelegateToMemberToolName  = "delegate_task_to_member"
	DelegateToMembersToolName = "delegate_task_to_all_members"
)

// DelegateToMember creates the tool definition a team model uses to forward a
// task to a single member.
func DelegateToMember(memberIDs []string) Tool {
	return Tool{
		Name: DelegateToMemberToolName,
		Description: `Use this function to delegate a task to the selected team member.
You must provide a clear and concise description of the task the member should achieve AND the expected output.`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"member_id": map[string]any{
					"type":        "string",
					"description": "The ID of the member to delegate the task to.",
					"enum":        memberIDs,
				},
				"task": map[string]any{
					"type":        "string",
					"description": "A clear and concise description of the task the member should achieve.",
				},
			},
			"required": []string{"member_id", "task"},
		},
	}
}

// DelegateToMembers creates the tool definition for fanning one task out to
// every member of the team at once.
func DelegateToMembers() Tool {
	return Tool{
		Name: DelegateToMembersToolName,
		Description: `Use this function to delegate the same task to all team members at once.
You must provide a clear and concise description of the task AND the expected output.`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "A clear and concise description of the task each member should achieve.",
				},
			},
			"required": []string{"task"},
		},
	}
}
