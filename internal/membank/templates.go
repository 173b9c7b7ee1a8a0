package membank

// First-run templates. A missing document is created from its template
// rather than treated as fatal; the agent's memory resets between
// sessions and the bank must always be loadable.

var templates = map[Role]string{
	RoleProjectBrief: "# Project Brief\n\n",

	RoleProductContext: "# Product Context\n\n",

	RoleSystemPatterns: "# System Patterns\n\n",

	RoleTechContext: "# Tech Context\n\n",

	RoleActiveContext: "# Active Context\n\n",

	RoleProgress: "# Progress\n\n",

	RoleProjectIntelligence: "# Project Intelligence\n\n" +
		"This file captures unique patterns, preferences, and challenges specific to this project.\n\n" +
		"## Learned Patterns:\n\n" +
		"## User Preferences:\n\n" +
		"## Known Issues/Challenges:\n\n" +
		"## Tool Usage Patterns:\n\n",

	RoleRoadmap: "# Project Roadmap\n\n" +
		"## High-Level Milestones:\n\n" +
		"- [ ] Milestone 1: Initial Setup\n" +
		"- [ ] Milestone 2: Core Feature Development\n\n",

	RoleTasks: "# Project Tasks\n\n" +
		"## Current Sprint Tasks:\n\n",
}

// Template returns the first-run body for the role.
func (r Role) Template() string {
	return templates[r]
}
