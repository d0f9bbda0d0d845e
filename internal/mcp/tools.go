package mcp

import "github.com/mark3labs/mcp-go/mcp"

const policyDescription = "Segmentation policy: time_anchored (default, one row per pickup time), " +
	"field_completion (emit once time, flight and a name are seen), or grouped (merge rows sharing time and flight, sorted by time)."

var policyEnum = mcp.Enum("time_anchored", "field_completion", "grouped")

var extractToolDef = mcp.NewTool("transfer_extract",
	mcp.WithDescription("Convert a pasted transfer listing into a tab-separated table (Saat, blank, Uçuş, Yolcu) without touching any session. "+
		"Pass either text or path (a .txt file)."),
	mcp.WithString("text", mcp.Description("Listing text, e.g. a WhatsApp export.")),
	mcp.WithString("path", mcp.Description("Path to a .txt listing inside an allowed directory.")),
	mcp.WithString("policy", mcp.Description(policyDescription), policyEnum),
	mcp.WithString("drop_lines_matching", mcp.Description("Case-insensitive regexp; matching lines are ignored.")),
	mcp.WithString("drop_records_matching", mcp.Description("Case-insensitive regexp; records with a matching line are discarded (e.g. \\bSAW\\b).")),
	mcp.WithBoolean("include_bom", mcp.Description("Prefix the table with a UTF-8 BOM.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var addToolDef = mcp.NewTool("transfer_add",
	mcp.WithDescription("Append a chunk of listing text to a session buffer. Call transfer_finish when all chunks are in."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Caller-chosen session id.")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Next chunk of the listing.")),
)

var finishToolDef = mcp.NewTool("transfer_finish",
	mcp.WithDescription("Convert everything collected in a session and store the table as the session's last result. The buffer is kept."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id used with transfer_add.")),
	mcp.WithString("policy", mcp.Description(policyDescription), policyEnum),
	mcp.WithString("drop_lines_matching", mcp.Description("Case-insensitive regexp; matching lines are ignored.")),
	mcp.WithString("drop_records_matching", mcp.Description("Case-insensitive regexp; records with a matching line are discarded.")),
	mcp.WithBoolean("include_bom", mcp.Description("Prefix the table with a UTF-8 BOM.")),
)

var resetToolDef = mcp.NewTool("transfer_reset",
	mcp.WithDescription("Clear a session's buffer and last result."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to clear.")),
	mcp.WithDestructiveHintAnnotation(true),
)

var showToolDef = mcp.NewTool("transfer_show",
	mcp.WithDescription("Show a session's collected text and last result."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to show.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var listToolDef = mcp.NewTool("transfer_list",
	mcp.WithDescription("List sessions, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100).")),
	mcp.WithNumber("offset", mcp.Description("Items to skip.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyToolDef = mcp.NewTool("transfer_history",
	mcp.WithDescription("List the finish runs of a session, newest first."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to inspect.")),
	mcp.WithNumber("limit", mcp.Description("Max runs (default 20, max 100).")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("transfer_export",
	mcp.WithDescription("Write a session's last result to a .tsv file with a UTF-8 BOM. "+
		"Defaults to ~/.transferbot/exports/."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session whose result to export.")),
	mcp.WithString("path", mcp.Description("Target .tsv path inside an allowed directory.")),
)

var purgeToolDef = mcp.NewTool("transfer_purge",
	mcp.WithDescription("Permanently delete sessions idle for more than older_than_days (default 7; 0 deletes all)."),
	mcp.WithNumber("older_than_days", mcp.Description("Idle age in days.")),
	mcp.WithDestructiveHintAnnotation(true),
)
