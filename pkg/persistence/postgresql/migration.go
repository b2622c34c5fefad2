package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions: scalar fields here, steps and triggers as child rows
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				workspace_id VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				version INTEGER NOT NULL DEFAULT 1,
				tags JSONB,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_workspace_id ON workflows(workspace_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_type ON workflows(type);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			-- seq preserves definition order across save/load round trips
			CREATE TABLE workflow_steps (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				seq BIGSERIAL,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				position INTEGER NOT NULL DEFAULT 0,
				action JSONB,
				conditions JSONB,
				approval JSONB,
				delay_seconds INTEGER NOT NULL DEFAULT 0,
				sub_workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				next_step_id VARCHAR(255) NOT NULL DEFAULT '',
				on_true_step_id VARCHAR(255) NOT NULL DEFAULT '',
				on_false_step_id VARCHAR(255) NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_steps_workflow_id ON workflow_steps(workflow_id);

			CREATE TABLE workflow_triggers (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				seq BIGSERIAL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				event_type VARCHAR(255) NOT NULL DEFAULT '',
				conditions JSONB,
				configuration JSONB,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				last_fired_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_triggers_workflow_id ON workflow_triggers(workflow_id);
			CREATE INDEX idx_workflow_triggers_event_type ON workflow_triggers(event_type);

			-- No foreign key to workflows: execution history outlives definitions
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL DEFAULT '',
				triggered_by VARCHAR(255) NOT NULL DEFAULT '',
				current_step_id VARCHAR(255) NOT NULL DEFAULT '',
				context JSONB,
				variables JSONB,
				parent_execution_id VARCHAR(255) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				wait_until TIMESTAMP WITH TIME ZONE,
				approval_request_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_wait_until ON executions(wait_until);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			-- Step attempts are append-only; seq preserves first-write order
			CREATE TABLE step_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				seq BIGSERIAL,
				step_id VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_step_executions_execution_id ON step_executions(execution_id);
			CREATE INDEX idx_step_executions_step_id ON step_executions(step_id);

			CREATE TABLE approval_requests (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				requested_by VARCHAR(255) NOT NULL DEFAULT '',
				approvers JSONB,
				type VARCHAR(50) NOT NULL,
				required_approvals INTEGER NOT NULL DEFAULT 1,
				received_approvals INTEGER NOT NULL DEFAULT 0,
				allow_delegation BOOLEAN NOT NULL DEFAULT FALSE,
				escalation_user VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decisions JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approval_requests_execution_id ON approval_requests(execution_id);
			CREATE INDEX idx_approval_requests_status ON approval_requests(status);
			CREATE INDEX idx_approval_requests_due_at ON approval_requests(due_at);

			-- Templates keep their steps and triggers as JSON blobs; the IDs
			-- inside are local to the template and remapped on instantiation
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(50) NOT NULL,
				tags JSONB,
				steps JSONB,
				triggers JSONB,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_category ON workflow_templates(category);
		`,
	}
}
