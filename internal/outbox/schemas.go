package outbox

const recordChangedSchema = `{
  "type": "object",
  "title": "RecordChanged",
  "properties": {
    "record_id": {"type": "integer"},
    "user_id": {"type": "string"},
    "input_name": {"type": "string"},
    "record_date": {"type": "string", "format": "date"},
    "operation_date": {"type": "string", "format": "date"},
    "call_count": {"type": "integer", "minimum": 0},
    "catch_count": {"type": "integer", "minimum": 0},
    "re_call_count": {"type": "integer", "minimum": 0},
    "prospective_count": {"type": "integer", "minimum": 0},
    "approach_ng_count": {"type": "integer", "minimum": 0},
    "product_explanation_ng_count": {"type": "integer", "minimum": 0},
    "acquisition_count": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "user_id", "record_date", "operation_date", "occurred_at"],
  "additionalProperties": false
}`

const targetUpdatedSchema = `{
  "type": "object",
  "title": "TargetUpdated",
  "properties": {
    "target_id": {"type": "integer"},
    "user_id": {"type": "string"},
    "year_month": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}$"},
    "target_acquisition": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["target_id", "user_id", "year_month", "target_acquisition", "occurred_at"],
  "additionalProperties": false
}`
